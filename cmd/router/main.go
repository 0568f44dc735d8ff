// Command router runs a single BGP-like route processor. Usage:
//
//	router <asn> <conn> [<conn> ...]
//
// where each <conn> is of the form port-neighbor_ip-relation, relation is
// one of cust, peer, prov.
package main

import (
	"log"
	"os"
	"strconv"

	routed "github.com/ormskirk/routed"
)

func main() {
	if len(os.Args) < 3 {
		log.Println("usage: router <asn> <conn> [<conn> ...]")
		os.Exit(1)
	}

	asn, err := strconv.Atoi(os.Args[1])
	if err != nil {
		log.Printf("invalid asn %q: %v", os.Args[1], err)
		os.Exit(1)
	}

	specs := make([]routed.NeighborSpec, 0, len(os.Args)-2)
	for _, tok := range os.Args[2:] {
		spec, err := routed.ParseNeighborSpec(tok)
		if err != nil {
			log.Printf("invalid connection arg: %v", err)
			os.Exit(1)
		}
		specs = append(specs, spec)
	}

	r := routed.NewRouter(asn, specs, routed.WithLogger(log.Print))
	if err := r.Start(); err != nil {
		log.Fatalf("error starting router: %v", err)
	}
	r.Run()
}
