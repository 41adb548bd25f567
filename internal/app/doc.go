// Package app wires modhost's components from a host configuration.
//
// Every collaborator can be replaced through an Option, which is how the
// command tests run the full stack against a mock runtime and a mock
// proxy controller:
//
//	a, err := app.New(
//		app.WithConfig(cfg),
//		app.WithRuntime(runtime.NewMockRuntime()),
//		app.WithController(route.NewMockController(dir)),
//	)
//	defer a.Close()
package app
