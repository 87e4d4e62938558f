// Package shell owns command transport to actor hosts.
//
// Ownership boundary:
// - script execution (local sh, remote ssh)
//
// - quoting, user switching, detaching
//
// Exit status is data, not an error; callers decide what a failing
// script means.
package shell
