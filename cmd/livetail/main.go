// Command livetail binds one or more facility topics and prints every live
// update as it arrives.
//
//	livetail --config configs/livetail.example.yaml --topic CAF-01 --topic CAF-02
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
