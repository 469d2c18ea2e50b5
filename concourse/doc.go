// Package concourse is a typed client for the Concourse CI HTTP API.
//
// A Client logs in with a username and password on its first call and reuses the
// bearer token for every later call. Calls that find no token while another call
// is logging in wait for that login instead of starting their own.
//
// Any response status from 1 through 400 is a success; callers interpret redirects
// and 400s themselves. Failures come back as one of three error types:
//
//   - *AuthError: the token exchange failed
//   - *HTTPError: the server answered with a status above 400
//   - *NetworkError: the request did not complete, including timeouts
//
// # Quick Start
//
//	client, err := concourse.New(concourse.Config{
//	    APIEndpoint: "https://ci.example.com",
//	    Username:    "admin",
//	    Password:    "secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	build, err := client.CreateJobBuild(ctx, concourse.JobRef{
//	    Name: "hello", PipelineName: "greetings", TeamName: "main",
//	})
//
// # Build events
//
// The events endpoint never closes on its own. BuildEvents returns an EventStream
// that the caller reads until the end event and then closes:
//
//	stream, err := client.BuildEvents(ctx, build.Ref())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Close()
//
//	for stream.Next() {
//	    event := stream.Event()
//	    if event.IsEnd() {
//	        break
//	    }
//	    // decode with event.Decode()
//	}
package concourse
