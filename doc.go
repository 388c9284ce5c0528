// Package reverb builds training data for a neural reverb emulator and
// trains the emulator on it.
//
// # Preprocessing
//
// [Preprocess] turns a directory of dry recordings into a paired dataset:
//
//   - The reverb tail of the configured effect is measured by driving it
//     with noise bursts followed by silence, or taken from the config.
//   - Recordings are cut into segments that leave room for the tail. Each
//     segment is faded and randomly zero-padded to the model input size.
//   - Trailing short segments are agglomerated into further full chunks.
//   - Every dry chunk is rendered through the effect, fully wet.
//   - The dry/wet pairs are materialized into one binary container with a
//     YAML manifest next to it.
//
// A model input shorter than the tail fails with [ErrConfiguration] before
// any file is written.
//
// # Training
//
// [Train] loads the dataset, decomposes dry and wet audio into PQMF
// sub-bands and fits an encoder/decoder network predicting the wet
// residual. With train.variational set, the latent is sampled from a
// Gaussian and a KL term joins the loss. Every run gets a fresh directory
// under train.log_dir holding per-epoch statistics and audio examples.
//
// # Configuration
//
// Parameters come from [DefaultConfig], an optional YAML file, an optional
// .env file and REVERB_* environment variables, in that order:
//
//	cfg, err := reverb.LoadConfig("config.yaml", ".env")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := reverb.Preprocess(ctx, cfg, logger)
//
// The reverb-preprocess and reverb-train commands wrap these functions.
package reverb
