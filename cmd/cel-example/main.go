package main

import (
	"encoding/xml"
	"fmt"
	"log"

	"github.com/cockroachdb/apd/v3"

	"github.com/twinfer/xbind/internal/cel"
)

func main() {
	// Rules see the bound value as self, with decimals and QNames
	// normalized the way the validator does it.
	pool, err := cel.NewExpressionPool()
	if err != nil {
		log.Fatalf("Failed to create CEL expression pool: %v", err)
	}

	price, _, err := apd.NewFromString("148.95")
	if err != nil {
		log.Fatal(err)
	}
	params := map[string]any{
		cel.SelfVariable: map[string]any{
			"part-num": "872-AA",
			"price":    price,
			"kind":     xml.Name{Space: "urn:example:purchase", Local: "item"},
		},
	}

	for _, expr := range []string{
		`self["price"] < 200.0`,
		`self["part-num"].matches('^[0-9]{3}-[A-Z]{2}$')`,
		`local_name(self.kind) == "item"`,
		`has_key(self, "ship-date")`,
	} {
		program, err := pool.GetExpression(expr)
		if err != nil {
			log.Fatalf("Failed to compile rule: %v", err)
		}
		result, err := pool.EvaluateExpression(program, params)
		if err != nil {
			log.Fatalf("Failed to evaluate rule: %v", err)
		}
		fmt.Printf("%-50s %v\n", expr, result)
	}
}
