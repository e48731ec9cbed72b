// Package scheduling groups the packages that decide when retrieval work
// runs. See the scheduler subpackage.
package scheduling
