// Package session is the API the application drives.
//
// A Session ties one signed-in user's key custodian, content codec and sync
// coordinator to a document store. Mutations encrypt before they write and
// nudge the coordinator to reconnect so the fresh record is decoded with
// current key state. Tasks streams the merged, decrypted view.
//
// Write errors are returned wrapped around the errors package sentinels;
// errors.UserMessage turns them into text for display.
package session
