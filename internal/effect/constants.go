package effect

// Convolution constants.
const (
	// Minimum response length for FFT convolution; shorter responses use
	// direct SIMD dot products.
	minKernelForFFT = 400

	// Smallest FFT block size (power of 2).
	defaultFFTBlockSize = 512

	// A real FFT of size N has N/2 + 1 unique complex coefficients.
	fftHermitianDivisor = 2
)

// Plate reverb constants. Delay lengths are in samples at the reference
// rate and scaled to the processing rate.
const (
	plateReferenceRate = 44100.0

	// Feedback = RoomSize*plateRoomScale + plateRoomOffset.
	plateRoomScale  = 0.28
	plateRoomOffset = 0.7

	// Damping is scaled into the comb lowpass coefficient.
	plateDampScale = 0.4

	plateAllpassFeedback = 0.5

	// Extra delay for odd channels, decorrelating stereo outputs.
	plateStereoSpread = 23

	// Output scaling so the wet level is comparable to the input.
	plateWetScale = 3.0

	// Defaults for PlateParams.
	DefaultPlateRoomSize = 0.84
	DefaultPlateDamping  = 0.2
	DefaultPlateGain     = 0.015

	maxPlateRoomSize = 0.98
	maxPlateDamping  = 0.99
	maxPlateGain     = 0.1
)

var (
	plateCombTunings    = []int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	plateAllpassTunings = []int{556, 441, 341, 225}
)

// FullyWet is the blend that outputs only the processed signal.
const FullyWet = 1.0
