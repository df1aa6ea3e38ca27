package encryptedir

import "github.com/awnumar/memguard"

// wipe overwrites b with zeros. Nil and empty slices are ignored.
func wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}
