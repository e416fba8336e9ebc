// Package pool provides a generic bounded connection pool.
//
// # Overview
//
// A Pool[C] lends backend connections of type C to one caller at a time.
// It keeps between MinConnections and MaxConnections connections open,
// queues callers in FIFO order when saturated and closes connections that
// sit idle past IdleTimeout.
//
// # Usage
//
//	p, err := pool.New(ctx, pool.Config{MinConnections: 5, MaxConnections: 50},
//	    func(ctx context.Context) (*sql.Conn, error) { return db.Conn(ctx) })
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	err = p.Execute(ctx, func(ctx context.Context, conn *sql.Conn) error {
//	    return conn.PingContext(ctx)
//	})
//
// Execute is the preferred entry point: it releases the handle on every
// path. Get and Release are available for callers that need to hold a
// connection across several steps.
//
// # Errors
//
//   - ErrPoolTimeout: no handle within ConnectionTimeout
//   - ErrPoolClosing: the pool was closed
//   - *BackendError: a connection could not be opened (wraps ErrBackendUnavailable)
//
// # Creation throttling
//
// CreateRate caps how many connections are opened per second so that a
// burst of demand does not stampede the backend.
package pool
