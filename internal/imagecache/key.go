package imagecache

import (
	"crypto/md5"
	"encoding/hex"
)

// CacheKey 把 URL 映射为稳定的缓存键，内存层、磁盘文件名与锁表共享同一键。
// 这里按原始字符串取摘要，不做任何规范化：同一资源的不同写法就是不同条目。
func CacheKey(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
