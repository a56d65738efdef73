package shared

import "fmt"

// SyncLockKey builds the redis key guarding an ERP import of the given kind.
func SyncLockKey(kind string) string {
	return fmt.Sprintf("payables:erpsync:%s:lock", kind)
}
