// Package testpage holds the built-in print payload sent when no payload
// file is configured: a small ESC/POS test page.
package testpage

var data = buildTestPage()

func buildTestPage() []byte {
	var page []byte
	page = append(page, 0x1b, 0x40) // ESC @, initialize
	page = append(page, 0x1b, 0x61, 0x01) // ESC a 1, center
	page = append(page, []byte("printerbridge\n")...)
	page = append(page, []byte("USB test page\n")...)
	page = append(page, 0x1b, 0x61, 0x00) // ESC a 0, left
	page = append(page, []byte("If you can read this, the\n")...)
	page = append(page, []byte("bulk OUT path is working.\n")...)
	page = append(page, 0x0a, 0x0a, 0x0a, 0x0a)
	page = append(page, 0x1d, 0x56, 0x42, 0x00) // GS V B 0, feed and partial cut
	return page
}

// Data returns a fresh copy of the test page payload.
func Data() []byte {
	return append([]byte(nil), data...)
}

func Size() int {
	return len(data)
}
