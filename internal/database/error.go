package database

import "strings"

var duplicateKeyErrStrings = []string{
	// postgres
	"duplicate key",
	// sqlite
	"UNIQUE constraint failed",
}

//IsDuplicateKeyErr 返回是否为唯一键冲突错误.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range duplicateKeyErrStrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
