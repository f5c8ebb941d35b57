package mets_test

import (
	"fmt"

	"github.com/ocr4all/spi/pkg/mets"
)

func ExampleFileGroup() {
	codec := mets.NewFileGroup("OCR-D")

	group, _ := codec.Encode(mets.Track{1, 2})
	fmt.Println(group)

	track, _ := codec.Decode("OCR-D-1-2-3")
	fmt.Println(track.Child(4))

	if _, err := codec.Decode("OCR-D-01"); err != nil {
		fmt.Println("rejected")
	}
	// Output:
	// OCR-D-1-2
	// 1-2-3-4
	// rejected
}

func ExampleNewFrameworkFileGroup() {
	fg := mets.NewFrameworkFileGroup("OCR-D", mets.Track{1}, mets.Track{1, 2})
	fmt.Println(fg.Input(), fg.Output())
	// Output: OCR-D-1 OCR-D-1-2
}
