// Command handcap runs synthetic capture sessions, the upload collector and
// the dataset tools.
//
// Usage:
//
//	handcap simulate [--ui] [--cycles n] [--shots dir] [--echo d [--template file]]
//	handcap serve [--bind addr]
//	handcap dataset ls|show|resample|export [--pose posquat]
//	handcap config init|validate
package main
