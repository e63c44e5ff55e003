// Package domain models the inputs and outputs of epicenter analysis.
//
// # Fields
//
// A video is reduced to a sequence of dense motion fields, one per pair of
// consecutive processed frames. Each [MotionField] holds the horizontal (U)
// and vertical (V) displacement of every pixel as two gonum matrices with
// one row per image row and one column per image column:
//
//	U.At(y, x)  →  displacement along +x (rightwards)
//	V.At(y, x)  →  displacement along +y (downwards, image convention)
//
// Scalar fields (divergence, curl, strain energy, combined significance) are
// plain *mat.Dense values of the same shape. Shapes are checked at every
// boundary and a mismatch surfaces as [InvalidFieldShapeError].
//
// # Sign Conventions
//
// Curl is ∂v/∂x − ∂u/∂y evaluated in image coordinates. Because y grows
// downwards, a positive value is a counter-clockwise rotation as seen on
// screen, which is the negative of the textbook right-handed sign. Consumers
// must not flip it.
//
// # Candidates
//
// An [EpicenterCandidate] is a pixel coordinate plus a non-negative score.
// Coordinates are truncated (not rounded) from an intensity-weighted region
// centroid, and the score is the smoothed significance sampled at that
// truncated pixel. Lists of candidates are ordered by descending score.
//
// # Result Records
//
// [AnalysisResult] is the record handed to reporting, the result topic and the
// result store:
//
//	{
//	  "video_properties": {"width", "height", "fps", "frame_count", "processed_frames"},
//	  "epicenters": [{"x", "y", "score"}, ... at most five ...]
//	}
//
// Result IDs come from the originating request when one is supplied, which
// keeps republished requests idempotent downstream, and fall back to a random
// UUID otherwise. See [NewResultID].
package domain
