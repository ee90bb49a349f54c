// Package api serves the fleetcron HTTP surface on a chi router.
//
// Routes, all under /v1:
//
//	POST   /ssh                      run a command on one host
//	POST   /ssh/batch                run a command on a group, NDJSON stream
//	GET    /ssh/{hostId}             test connect and authenticate
//	POST   /jobs                     create a scheduled job
//	GET    /jobs                     list jobs
//	GET    /jobs/{jobId}             get a job
//	DELETE /jobs/{jobId}             delete a job
//	POST   /jobs/{jobId}/enable      enable and schedule
//	POST   /jobs/{jobId}/disable     disable and unschedule
//	GET    /jobs/{jobId}/logs        execution log of a job
//	GET    /logs                     execution log of every run
//	POST   /groups                   create a group
//	GET    /groups                   list groups
//	GET    /groups/{groupId}         get a group
//	GET    /groups/{groupId}/hosts   list a group's hosts
//	POST   /hosts                    register a host
//	GET    /hosts/{hostId}           get a host
//	GET    /queue/{set}              inspect the pending or processing set
//
// Stage failures map to HTTP statuses: a connect timeout is 408, an
// authenticate or execute timeout is 504, oversized output is 413 and any
// other stage failure is 500.
package api
