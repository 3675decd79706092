// Package output provides output formatting for keymesh-cli.
//
// Two formats are supported: an ASCII table built with text/tabwriter
// and indented JSON for scripting.
package output
