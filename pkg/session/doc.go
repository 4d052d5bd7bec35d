/*
Package session implements thread management on top of a checkpoint store.

It serializes runs that share a thread id, within one process through reference
counted mutexes and across replicas through an optional distributed locker, and
resolves the position a run resumes from.
*/
package session
