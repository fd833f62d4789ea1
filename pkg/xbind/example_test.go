package xbind_test

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/twinfer/xbind/pkg/marshal"
	"github.com/twinfer/xbind/pkg/xbind"
)

// Example demonstrates converting between XML and JSON
func Example() {
	doc := []byte(`<c:contact xmlns:c="urn:example:crm" id="7"><name>Ada</name><age>36</age><balance>12.50</balance></c:contact>`)

	jsonData, err := xbind.XMLToJSON(doc, "testdata/contact.yaml")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(jsonData))

	// Convert JSON back to XML
	xmlData, err := xbind.JSONToXML(jsonData, "testdata/contact.yaml",
		xbind.WithRootElement("contact"),
		xbind.WithNamespacePrefixes(map[string]string{"urn:example:crm": "c"}))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(xmlData))

	// Output:
	// {
	//   "age": 36,
	//   "balance": 12.50,
	//   "id": 7,
	//   "name": "Ada"
	// }
	// <c:contact xmlns:c="urn:example:crm" id="7"><name>Ada</name><age>36</age><balance>12.50</balance></c:contact>
}

// Example_withOptions demonstrates a configured binder with Go structs
func Example_withOptions() {
	type Contact struct {
		Id   int32
		Name string
		Age  int32
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	types := marshal.NewTypeRegistry()
	types.MustRegister("crm.Contact", Contact{})

	binder := xbind.NewBinder(
		xbind.WithLogger(logger),
		xbind.WithCaching(10*time.Minute),
		xbind.WithTypes(types),
		xbind.WithValidation(true),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc, err := binder.Marshal(ctx, &Contact{Id: 1, Name: "Grace", Age: 85}, "testdata/contact.yaml",
		xbind.WithXMLDeclaration(true), xbind.WithIndent("  "))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(doc))

	v, err := binder.Unmarshal(ctx, doc, "testdata/contact.yaml")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(v.(*Contact).Name)
}
