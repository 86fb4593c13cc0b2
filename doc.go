// Package keyframer is a behavior server for a robot face.
//
// Named behaviors are loaded from a library (package 'behavior').  A
// goal request names a behavior and gives its arguments.  The goal
// server (package 'goal') evaluates the behavior's keyframes with
// those arguments (package 'params'), clamps the results (package
// 'sequencer'), and publishes a keyframe command for the face.
//
// Couplings for stdin/stdout, MQTT, and WebSockets are in package
// 'bus' and its subpackages.  Command-line tools are in `cmd`.
package keyframer
