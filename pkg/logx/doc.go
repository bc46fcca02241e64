// Package logx is announcebot's zerolog front end. Components hold a Logger
// value; the process-wide Service behind it can change level and sinks at
// runtime when the config is reloaded. Console output is human readable and
// the file sink is JSON, one event per line.
package logx
