package logging

// NewLogger exports newLogger for testing.
var NewLogger = newLogger
