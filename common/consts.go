package common

import "time"

const DefaultScaleInterval = 10 * time.Second
const DefaultProvisionTimeout = 5 * time.Minute
const DefaultShutdownTimeout = 30 * time.Second
const DefaultTeardownConcurrency = 5
const DefaultNetworkClientTimeout = 30 * time.Second
const DefaultMinRunners = 1
const DefaultMaxRunners = 10
const DefaultMemory = "2048MiB"
const DefaultVCPUs = 2
const DefaultKernelArgs = "console=ttyS0 reboot=k panic=1 pci=off"
const DefaultAPIAddress = "0.0.0.0:8080"
const DefaultMetricsAddress = "127.0.0.1:8081"
const DefaultMetadataAddress = "169.254.169.254:80"
const DefaultInstanceStopTimeout = 30 * time.Second
const DefaultQueueDepthCacheTTL = 5 * time.Second
const DefaultLauncherNetwork = "172.30.0.0/24"
