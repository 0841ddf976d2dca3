package contract

import "fmt"

// ValidateRecord 校验记录字段非空且不超过 maxBytes（<=0 表示不限）。
// 纯函数，无 I/O。
func ValidateRecord(rec ManifestRecord, maxBytes int) error {
	if rec.Folder == "" || rec.Stem == "" {
		return fmt.Errorf("%w: empty manifest field", ErrInvalidInput)
	}
	if maxBytes <= 0 {
		return nil
	}
	if len(rec.Folder) > maxBytes {
		return fmt.Errorf("%w: %w: folder is %d bytes (max %d)", ErrInvalidInput, ErrFieldTooLong, len(rec.Folder), maxBytes)
	}
	if len(rec.Stem) > maxBytes {
		return fmt.Errorf("%w: %w: stem is %d bytes (max %d)", ErrInvalidInput, ErrFieldTooLong, len(rec.Stem), maxBytes)
	}
	return nil
}
