package location_test

import (
	"errors"
	"fmt"
	"log"

	"github.com/robert-malhotra/sarprep/internal/location"
)

func ExampleLoadRegistry() {
	registry, err := location.LoadRegistry("../../data/terminals")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(registry.Names())

	_, err = registry.Lookup("stanlo")
	fmt.Println(errors.Is(err, location.ErrUnknownLocation))
	fmt.Println(err)

	// Output:
	// [flotta stanlow]
	// true
	// unknown location: "stanlo" (did you mean "stanlow"?)
}
