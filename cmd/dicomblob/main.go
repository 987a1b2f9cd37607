// Command dicomblob serves, retrieves, and exports DICOM instances held in
// blob storage.
package main

import (
	"os"

	"github.com/meigma/dicomblob/cmd/dicomblob/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
