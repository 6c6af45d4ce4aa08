// Package ludus is a typed client for the ludus instance tool.
//
// ludus manages sandboxed instances created from archetypes through a set
// of command-line verbs (instance-create, instance-run, instance-clear,
// config-set, config-get). This package turns each verb into a method,
// runs the tool exactly once per call, and turns its exit status and
// output back into typed values or typed errors.
//
// # Basic usage
//
//	cfg := ludus.NewConfig("/srv/ludus")
//	c, err := ludus.NewController(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = c.CreateInstance(ctx, "a", "baseline", ludus.CreateOptions{})
//	if errors.Is(err, ludus.ErrInstanceExists) {
//	    // pass Overwrite: true to replace it
//	}
//
//	err = c.SetConfig(ctx, "a", ludus.Key("config", "key"), ludus.Int(3), ludus.SetOptions{})
//	values, err := c.GetConfig(ctx, "a", ludus.Key("config", "key")) // ["3"]
//
// # Errors
//
// Every non-zero exit becomes one *CommandError. Its kind is matched with
// errors.Is against ErrInstanceExists, ErrInstanceNotFound, ErrConfigKey
// or ErrInstanceExecution; the exit code and the tool's stderr, verbatim,
// are reached with errors.As. Calls with invalid arguments fail with
// ErrInvalidArgument before any process is spawned. An expired
// Config.Timeout fails with ErrTimeout.
//
// The stderr patterns behind the classification live in Classifier and can
// be overridden through Config.Patterns.
//
// # Layout
//
// A ludus root holds scripts/ (one executable per verb), instances/,
// archetypes/ and codebase/. Directory names are configurable; see Config
// and LoadConfig for the YAML and TOML forms.
package ludus
