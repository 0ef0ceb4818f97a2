package j2kxml_test

import (
	"fmt"
	"log"

	"github.com/j2kxml/j2kxml/pkg/j2kxml"
	"github.com/j2kxml/j2kxml/testutil"
)

// Example demonstrates decoding a JP2 file's structure to XML.
func Example() {
	fileBytes := testutil.MinimalJP2()

	tree, err := j2kxml.ParseAuto(fileBytes)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("kind: %v, top-level boxes: %d\n", tree.Kind, len(tree.Boxes))

	cs := tree.MainCodestream()
	fmt.Printf("codestream markers: %d\n", len(cs.Markers))

	// Output:
	// kind: jp2, top-level boxes: 4
	// codestream markers: 6
}

// ExampleToXML renders only the markers selected by a CEL filter.
func ExampleToXML() {
	xmlData, err := j2kxml.ToXML(testutil.MinimalJP2(),
		j2kxml.WithFilter(`name == "siz"`), j2kxml.WithIndent(""))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(len(xmlData) > 0)

	// Output:
	// true
}
