package utils

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
)

// EncodeSnapshot 用gob编码权重快照
func EncodeSnapshot(snapshot WeightSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot 解码 EncodeSnapshot 的输出
func DecodeSnapshot(data []byte) (WeightSnapshot, error) {
	var snapshot WeightSnapshot
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snapshot)
	return snapshot, err
}

// EncodeToBase64 快照放进JSON响应前转成Base64
func EncodeToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeFromBase64 将Base64字符串解码为字节流
func DecodeFromBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
