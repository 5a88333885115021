package types

// Document is a decrypted object together with the path it lives at
type Document struct {
	Path   string         `json:"path"`
	Object map[string]any `json:"object"`
}

// Merge returns a shallow merge of update over base. Neither map is modified.
func Merge(base, update map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(update))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}
