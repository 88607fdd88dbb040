/*
Package queue defines tasks to be performed to grow a stratification tree
as well as an interface for a Queue to manage them.

It also provides an in-memory implementation of the Queue interface
*/
package queue
