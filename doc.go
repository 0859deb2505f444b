/*
Package socrates is a bounded iterative refinement engine.

It runs two workflows over the same orchestrator:

  - Refine: a generator drafts an answer to a task, a critic reviews it, and
    the pair repeats for a fixed number of cycles.
  - Research: a planner splits a query into sub-questions, each is searched
    and analyzed in turn, coverage may queue follow-ups, and a synthesizer
    writes the final report.

Every step returns a partial update that is merged into a new immutable
State. A router picks the next step, an absolute step ceiling guarantees
termination, and on cancellation or failure the last good State is flushed
to the record sink instead of being discarded.

# Usage

	engine, err := socrates.New(
		socrates.WithProvider(llm.ProviderConfig{Name: llm.ProviderLMStudio}),
		socrates.WithSearcher(searxng.New("http://localhost:8888")),
		socrates.WithSink(file.NewSink(afero.NewOsFs(), "research")),
	)
	if err != nil {
		log.Fatal(err)
	}

	res, err := engine.Research(ctx, socrates.Request{Task: "Compare X vs Y", Depth: "standard"})
	if err != nil {
		log.Printf("partial result: %v", err)
	}
	fmt.Println(res.Output)

Progress is reported through domain.Observer values passed to New or to a
single call.
*/
package socrates
