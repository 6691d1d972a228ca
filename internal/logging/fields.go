package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// LookupFields 提供数据集/角色/输出格式字段，供查询类请求日志复用。
func LookupFields(dataset, character, format string) logrus.Fields {
	return logrus.Fields{
		"dataset":   dataset,
		"character": character,
		"format":    format,
	}
}
