// Package storage keeps uploaded documents for record file fields.
package storage

// Provider stores uploaded bytes and hands back a stable URL for each one.
type Provider interface {
	// Upload stores data under path (relative to the storage root) and
	// returns the URL to record in the field value. The final file name is
	// content-addressed, so it may differ from path's base name.
	Upload(data []byte, path string) (string, error)
	// Read returns the bytes of the file at path.
	Read(path string) ([]byte, error)
	// Delete removes the file at path.
	Delete(path string) error
	// PathOf maps a URL returned by Upload back to its storage path. It
	// reports false for URLs this provider did not issue.
	PathOf(url string) (string, bool)
}
