package common

import (
	"fmt"

	"tupledb/pkg/key"
)

// ValueType 定义值类型
type ValueType []byte

// Record 是内存和磁盘中存储的基本单元
type Record struct {
	Key   key.Key
	Value ValueType
}

// String 方便调试打印
func (r *Record) String() string {
	return fmt.Sprintf("Record{Key: %s, ValLen: %d}", r.Key, len(r.Value))
}
