package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHCLExtractor_PublicS3BucketACLIsHighSeverityFinding(t *testing.T) {
	src := []byte(`
resource "aws_s3_bucket_acl" "data" {
  bucket = aws_s3_bucket.data.id
  acl    = "public-read"
}
`)
	p, err := HCLExtractor{}.Extract("main.tf", src)
	require.NoError(t, err)
	require.True(t, p.Success)
	require.NotEmpty(t, p.Framework.TerraformResources)
	require.NotEmpty(t, p.Framework.TerraformFindings)

	f := p.Framework.TerraformFindings[0]
	assert.Equal(t, "public_exposure", f.Category)
	assert.Equal(t, "high", f.Severity)
}

func TestHCLExtractor_InlinePublicACLOnBucketResourceIsHighSeverityFinding(t *testing.T) {
	src := []byte(`
resource "aws_s3_bucket" "assets" {
  bucket = "my-assets"
  acl    = "public-read"
}
`)
	p, err := HCLExtractor{}.Extract("main.tf", src)
	require.NoError(t, err)
	require.True(t, p.Success)
	require.NotEmpty(t, p.Framework.TerraformFindings)

	f := p.Framework.TerraformFindings[0]
	assert.Equal(t, "aws_s3_bucket", f.ResourceType)
	assert.Equal(t, "public_exposure", f.Category)
	assert.Equal(t, "high", f.Severity)
}

func TestHCLExtractor_PrivateACLRaisesNoFinding(t *testing.T) {
	src := []byte(`
resource "aws_s3_bucket_acl" "data" {
  bucket = aws_s3_bucket.data.id
  acl    = "private"
}
`)
	p, err := HCLExtractor{}.Extract("main.tf", src)
	require.NoError(t, err)
	assert.Empty(t, p.Framework.TerraformFindings)
}

func TestHCLExtractor_VariableAndOutput(t *testing.T) {
	src := []byte(`
variable "region" {
  default = "us-east-1"
}

output "bucket_arn" {
  value = aws_s3_bucket.data.arn
}
`)
	p, err := HCLExtractor{}.Extract("vars.tf", src)
	require.NoError(t, err)
	require.NotEmpty(t, p.Framework.TerraformVariables)
	require.NotEmpty(t, p.Framework.TerraformOutputs)
	assert.Equal(t, "region", p.Framework.TerraformVariables[0].VariableName)
	assert.Equal(t, "bucket_arn", p.Framework.TerraformOutputs[0].OutputName)
}
