/*
Package config loads the server configuration.

Values are layered, later sources winning:

 1. built-in defaults (Default)
 2. a YAML file
 3. a dotenv file, which only fills variables not already set
 4. BURROW_* environment variables
 5. command line flags, applied by the cmd package

Durations accept Go syntax ("250ms") or plain seconds; sizes accept human
units ("4MiB"). Validate checks the result before the server starts,
including the reconciler's cron schedule.
*/
package config
