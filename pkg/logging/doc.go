// Package logging builds the *slog.Logger values used across resourcebind.
//
// Models, collections and the HTTP client accept a logger through their
// options. When none is given they fall back to Nop(), so library users who
// do not care about logs get no output.
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel("debug"),
//	    Format: logging.FormatJSON,
//	})
//	client := fetch.NewHTTPClient(url, fetch.WithLogger(logger))
package logging
