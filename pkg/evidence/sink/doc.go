// Package sink ships custody entries and sealed packages off-host.
//
// KafkaSink implements evidence.CustodySink: register it on a store with
// AddSink and every committed custody entry is published after its
// transaction commits. Publishing is best effort and never rolls back the
// committed entry; the store's log remains authoritative.
//
// S3Uploader implements packaging.Uploader for sealed archives.
package sink
