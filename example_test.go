package socrates_test

import (
	"context"
	"fmt"
	"log"

	"github.com/rimraf-adi/socrates"
	"github.com/rimraf-adi/socrates/internal/testutils"
)

// ExampleEngine_Refine runs two generate/critique cycles against a scripted backend.
func ExampleEngine_Refine() {
	gen := testutils.NewGenerator("").
		On("Review the response", "Mention chlorophyll.").
		On("Revise your previous response", "Plants turn light into sugar using chlorophyll.").
		On("Write a complete response", "Plants turn light into sugar.")

	engine, err := socrates.New(socrates.WithGenerator(gen))
	if err != nil {
		log.Fatal(err)
	}

	res, err := engine.Refine(context.Background(), socrates.Request{
		Task:          "Explain photosynthesis",
		MaxIterations: 2,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(res.State.Iteration)
	fmt.Println(res.Output)
	// Output:
	// 2
	// Plants turn light into sugar using chlorophyll.
}
