package main

import (
	"net/http"

	"github.com/aws/aws-lambda-go/lambdaurl"
	"github.com/spf13/cobra"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve behind a Lambda function URL with response streaming",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		// lambdaurl.Start never returns and the runtime freezes the process
		// between invocations, so session writes are drained per request.
		lambdaurl.Start(drainAfter(app.handler, app.chat.Wait))
		return nil
	},
}

// drainAfter runs wait once next has served the request.
func drainAfter(next http.Handler, wait func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		wait()
	})
}
