// Package sluice runs an incremental extract-and-infer loop inside your
// own program: on a fixed interval it reads the rows newer than a stored
// watermark, sends them to an inference service, and advances the
// watermark to the newest row it sent.
//
// Quick start:
//
//	f, err := sluice.New(mySource, myModel,
//	    sluice.WithInterval(10*time.Minute),
//	    sluice.WithWatermarkFile("hwm.json"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	if err := f.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
//
// A Feeder is safe for concurrent use. At most one run is active at a time.
package sluice
