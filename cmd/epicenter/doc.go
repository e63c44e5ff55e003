// Command epicenter locates the energetic epicenters of a video: the pixels
// where accumulated optical-flow strain and expansion concentrate.
//
// It analyzes single videos or frame directories (analyze), many at once
// (batch), serves the Kafka analysis worker with its HTTP endpoints (serve),
// lists stored results (history) and writes the synthetic test clip (synth).
package main
