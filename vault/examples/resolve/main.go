// Command resolve prints a configuration secret stored in SSM under the
// canonical /rehabdocs/<env>/<name> parameter path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

func main() {
	env := flag.String("env", "dev", "deployment environment")
	name := flag.String("name", "hyphen/api_key", "parameter name below /rehabdocs/<env>/")
	flag.Parse()

	ctx := context.Background()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	kmsProv := vault.NewKMSProvider(kms.NewFromConfig(awsCfg), "", 16, 5*time.Minute)
	ssmProv := vault.NewSSMProvider(ssm.NewFromConfig(awsCfg), 16, 5*time.Minute)
	r := vault.NewResolver(kmsProv, ssmProv, *env, time.Minute)

	ref := "ssm:" + vault.MakeParameterName("", *env, *name)
	v, err := r.Resolve(ctx, *name, ref)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d bytes\n", ref, len(v))
}
