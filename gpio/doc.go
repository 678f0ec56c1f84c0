// Package gpio drives the discrete outputs of a node: the activity indicator
// and the numbered trace pins used for external instrumentation.
//
// Pins are obtained from a Bank by port/line descriptor. MemBank keeps pin
// state in memory; SerialBank forwards every write as a text command to a
// microcontroller attached over a serial port.
package gpio
