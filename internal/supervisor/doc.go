// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

/*
Package supervisor runs the long-lived services of the serve command under a
suture v4 supervisor tree.

# Overview

	RootSupervisor ("cohortmart")
	├── DataSupervisor ("data-layer")
	│   └── CachePurgeService (memory cache backend only)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Each layer counts failures independently. A service that keeps failing
backs off on its own without restarting its siblings in the other layer.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
	    supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewCachePurgeService(memCache, cfg.Cache.PurgeInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

Supervisor events are logged through sutureslog, which takes a *slog.Logger;
logging.NewSlogLogger bridges it to the zerolog output used everywhere else.

# Shutdown

Canceling the context passed to Serve stops every service. Services that do
not return within TreeConfig.ShutdownTimeout are listed by
UnstoppedServiceReport.
*/
package supervisor
