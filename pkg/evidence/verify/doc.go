// Package verify re-checks collected evidence against its recorded digests.
//
// VerifyCase re-hashes the source of every record in a case. Each check is
// appended to the chain of custody as integrity_verified or integrity_failed,
// so a verification pass is itself part of the audit trail. Sealed cases can
// still be verified.
//
// Scheduler runs verification periodically using cron syntax:
//
//	scheduler := verify.NewScheduler(verifier, "0 3 * * *", nil)
//	if err := scheduler.Start(ctx); err != nil {
//	    return err
//	}
//	defer scheduler.Stop()
package verify
