// Package retention prunes past time slots and their bookings.
//
// # Basic Usage
//
//	pruner := retention.NewPruner(sessionPool, &retention.Config{
//	    RetentionDays: 90,
//	    PruneSchedule: "0 3 * * *", // Daily at 3 AM
//	})
//
//	scheduler := retention.NewScheduler(pruner)
//	if err := scheduler.Start(ctx); err != nil {
//	    return err
//	}
//	defer scheduler.Stop()
//
// Slot dates are compared as YYYY-MM-DD strings; a slot dated before
// today minus RetentionDays is removed together with its bookings.
package retention
