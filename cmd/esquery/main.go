// Command esquery runs CEL queries against Elasticsearch indices.
//
//	esquery count --index sales --where 'x.amount > 100.0'
//	esquery search --index sales --where 'x.region == "eu"' --order-by createdAt --desc --size 20
//	esquery group --index sales --field category=keyword \
//	    --by 'x.category' --select '{"category": g.key, "total": sum(x.amount)}'
//	esquery compile --index sales --where 'x.category in ["books", "games"]'
//
// Connection and compilation settings come from ESQ_* environment
// variables, optionally read from a .env file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(connectElastic).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
